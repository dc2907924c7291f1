package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/audiotour/internal/core/domain"
	"github.com/samirrijal/audiotour/internal/core/usecases"
)

var errNoPlayer = errors.New("no tour is running")

// buildSchema creates the GraphQL schema wired to the player and tour service.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	coordinateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Coordinate",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	stopType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Stop",
		Fields: graphql.Fields{
			"id":                    &graphql.Field{Type: graphql.String},
			"title":                 &graphql.Field{Type: graphql.String},
			"description":           &graphql.Field{Type: graphql.String},
			"location":              &graphql.Field{Type: coordinateType},
			"trigger_radius_meters": &graphql.Field{Type: graphql.Float},
			"narration_key":         &graphql.Field{Type: graphql.String},
		},
	})

	progressType := graphql.NewObject(graphql.ObjectConfig{
		Name: "TourProgress",
		Fields: graphql.Fields{
			"tour_id":                  &graphql.Field{Type: graphql.String},
			"active_stop_id":           &graphql.Field{Type: graphql.String},
			"active_audio_position_ms": &graphql.Field{Type: graphql.Int},
			"visited_stop_ids":         &graphql.Field{Type: graphql.NewList(graphql.String)},
			"is_playing":               &graphql.Field{Type: graphql.Boolean},
			"last_played_at":           &graphql.Field{Type: graphql.String},
		},
	})

	nextStopType := graphql.NewObject(graphql.ObjectConfig{
		Name: "NextStopHint",
		Fields: graphql.Fields{
			"stop_id":         &graphql.Field{Type: graphql.String},
			"title":           &graphql.Field{Type: graphql.String},
			"distance_meters": &graphql.Field{Type: graphql.Float},
			"bearing_degrees": &graphql.Field{Type: graphql.Float},
		},
	})

	// Snapshot fields are resolved from a map so json names stay the source of truth.
	playerType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Player",
		Fields: graphql.Fields{
			"tour_id":               &graphql.Field{Type: graphql.String},
			"session_id":            &graphql.Field{Type: graphql.String},
			"state":                 &graphql.Field{Type: graphql.String},
			"active_stop":           &graphql.Field{Type: stopType},
			"is_playing":            &graphql.Field{Type: graphql.Boolean},
			"position_ms":           &graphql.Field{Type: graphql.Int},
			"duration_ms":           &graphql.Field{Type: graphql.Int},
			"visited_stop_ids":      &graphql.Field{Type: graphql.NewList(graphql.String)},
			"completed_count":       &graphql.Field{Type: graphql.Int},
			"total_stops":           &graphql.Field{Type: graphql.Int},
			"permission_granted":    &graphql.Field{Type: graphql.Boolean},
			"awaiting_confirmation": &graphql.Field{Type: graphql.Boolean},
			"next_stop":             &graphql.Field{Type: nextStopType},
			"last_error":            &graphql.Field{Type: graphql.String},
			"closed":                &graphql.Field{Type: graphql.Boolean},
		},
	})

	player := func() (*usecases.TourController, error) {
		if deps.Player == nil {
			return nil, errNoPlayer
		}
		return deps.Player, nil
	}

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"player": &graphql.Field{
				Type:        playerType,
				Description: "State of the running tour",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					pl, err := player()
					if err != nil {
						return nil, err
					}
					return snapshotMap(pl.Snapshot()), nil
				},
			},
			"stops": &graphql.Field{
				Type:        graphql.NewList(stopType),
				Description: "Stops of a tour in route order",
				Args: graphql.FieldConfigArgument{
					"tour_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					stops, err := deps.Tours.Stops(p.Context, p.Args["tour_id"].(string))
					if err != nil {
						return nil, err
					}
					return stopMaps(stops), nil
				},
			},
			"progress": &graphql.Field{
				Type:        progressType,
				Description: "Stored progress of a tour",
				Args: graphql.FieldConfigArgument{
					"tour_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					progress, err := deps.Tours.Progress(p.Context, p.Args["tour_id"].(string))
					if err != nil {
						return nil, err
					}
					return progressMap(*progress), nil
				},
			},
		},
	})

	command := func(desc string, args graphql.FieldConfigArgument, run func(ctx context.Context, pl *usecases.TourController, args map[string]interface{}) error) *graphql.Field {
		return &graphql.Field{
			Type:        playerType,
			Description: desc,
			Args:        args,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				pl, err := player()
				if err != nil {
					return nil, err
				}
				if err := run(p.Context, pl, p.Args); err != nil {
					return nil, err
				}
				return snapshotMap(pl.Snapshot()), nil
			},
		}
	}

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"play": command("Play or resume the active stop", nil,
				func(ctx context.Context, pl *usecases.TourController, _ map[string]interface{}) error { return pl.Play(ctx) }),
			"pause": command("Pause playback", nil,
				func(ctx context.Context, pl *usecases.TourController, _ map[string]interface{}) error { return pl.Pause(ctx) }),
			"nextStop": command("Play the next stop in route order", nil,
				func(ctx context.Context, pl *usecases.TourController, _ map[string]interface{}) error { return pl.NextStop(ctx) }),
			"previousStop": command("Play the previous stop in route order", nil,
				func(ctx context.Context, pl *usecases.TourController, _ map[string]interface{}) error { return pl.PrevStop(ctx) }),
			"goToStop": command("Play a chosen stop",
				graphql.FieldConfigArgument{
					"stop_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				func(ctx context.Context, pl *usecases.TourController, args map[string]interface{}) error {
					return pl.GoToStop(ctx, args["stop_id"].(string))
				}),
			"seek": command("Move the playhead",
				graphql.FieldConfigArgument{
					"position_ms": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				func(ctx context.Context, pl *usecases.TourController, args map[string]interface{}) error {
					return pl.Seek(ctx, int64(args["position_ms"].(int)))
				}),
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
}

func stopMap(s domain.Stop) map[string]interface{} {
	return map[string]interface{}{
		"id":                    s.ID,
		"title":                 s.Title,
		"description":           s.Description,
		"location":              map[string]interface{}{"lat": s.Location.Lat, "lon": s.Location.Lon},
		"trigger_radius_meters": s.TriggerRadiusMeters,
		"narration_key":         s.NarrationKey,
	}
}

func stopMaps(stops []domain.Stop) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(stops))
	for _, s := range stops {
		out = append(out, stopMap(s))
	}
	return out
}

func progressMap(p domain.TourProgress) map[string]interface{} {
	return map[string]interface{}{
		"tour_id":                  p.TourID,
		"active_stop_id":           p.ActiveStopID,
		"active_audio_position_ms": int(p.ActiveAudioPositionMillis),
		"visited_stop_ids":         p.VisitedStopIDs,
		"is_playing":               p.IsPlaying,
		"last_played_at":           p.LastPlayedAt,
	}
}

func snapshotMap(s usecases.Snapshot) map[string]interface{} {
	m := map[string]interface{}{
		"tour_id":               s.TourID,
		"session_id":            s.SessionID,
		"state":                 string(s.State),
		"is_playing":            s.IsPlaying,
		"position_ms":           int(s.PositionMillis),
		"duration_ms":           int(s.Playback.DurationMillis),
		"visited_stop_ids":      s.VisitedStopIDs,
		"completed_count":       s.CompletedCount,
		"total_stops":           s.TotalStops,
		"permission_granted":    s.PermissionGranted,
		"awaiting_confirmation": s.AwaitingConfirmation,
		"last_error":            s.LastError,
		"closed":                s.Closed,
	}
	if s.ActiveStop != nil {
		m["active_stop"] = stopMap(*s.ActiveStop)
	}
	if s.NextStop != nil {
		m["next_stop"] = map[string]interface{}{
			"stop_id":         s.NextStop.StopID,
			"title":           s.NextStop.Title,
			"distance_meters": s.NextStop.DistanceMeters,
			"bearing_degrees": s.NextStop.BearingDegrees,
		}
	}
	return m
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
