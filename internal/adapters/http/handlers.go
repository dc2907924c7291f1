package http

import (
	"github.com/gofiber/fiber/v2"
)

// seekRequest is the body of POST /v1/player/seek.
type seekRequest struct {
	PositionMillis *int64 `json:"position_ms"`
}

// PlayerSnapshotHandler returns the current read model of the running tour.
func PlayerSnapshotHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Player == nil {
			return errUnavailable(c, "no tour is running")
		}
		if c.QueryBool("fresh") {
			snap, err := deps.Player.Refresh(c.UserContext())
			if err != nil {
				return errFromDomain(c, err)
			}
			return c.JSON(snap)
		}
		return c.JSON(deps.Player.Snapshot())
	}
}

// PlayerCommandHandler runs a parameterless transport command and returns
// the resulting snapshot.
func PlayerCommandHandler(deps *Dependencies, action string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Player == nil {
			return errUnavailable(c, "no tour is running")
		}
		ctx := c.UserContext()
		p := deps.Player

		var err error
		switch action {
		case "play":
			err = p.Play(ctx)
		case "pause":
			err = p.Pause(ctx)
		case "next":
			err = p.NextStop(ctx)
		case "previous":
			err = p.PrevStop(ctx)
		case "background":
			err = p.Background(ctx)
		case "foreground":
			err = p.Foreground(ctx)
		default:
			return errNotFound(c, "unknown player action "+action)
		}
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(p.Snapshot())
	}
}

// PlayerSeekHandler moves the playhead of the active narration.
func PlayerSeekHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Player == nil {
			return errUnavailable(c, "no tour is running")
		}
		var req seekRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.PositionMillis == nil {
			return errBadRequest(c, "position_ms is required")
		}
		if err := deps.Player.Seek(c.UserContext(), *req.PositionMillis); err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(deps.Player.Snapshot())
	}
}

// PlayerGoToStopHandler plays a stop picked by the listener.
func PlayerGoToStopHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Player == nil {
			return errUnavailable(c, "no tour is running")
		}
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "stop id is required")
		}
		if err := deps.Player.GoToStop(c.UserContext(), id); err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(deps.Player.Snapshot())
	}
}

// TourStopsHandler lists a tour's stops in route order.
func TourStopsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "tour id is required")
		}
		stops, err := deps.Tours.Stops(c.UserContext(), id)
		if err != nil {
			return errFromDomain(c, err)
		}

		offset, limit := pageParams(c, 100, 500)
		return c.JSON(paginate(c, stops, offset, limit))
	}
}

// TourProgressHandler returns a tour's progress. The running tour answers
// from memory so unsaved changes are visible.
func TourProgressHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "tour id is required")
		}
		if deps.Player != nil && deps.Player.TourID() == id && !deps.Player.Snapshot().Closed {
			c.Set("Cache-Control", "no-store")
			return c.JSON(deps.Player.Progress())
		}

		progress, err := deps.Tours.Progress(c.UserContext(), id)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(progress)
	}
}

// RemoveTourHandler deletes a tour's progress and downloaded content.
func RemoveTourHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "tour id is required")
		}
		if deps.Player != nil && deps.Player.TourID() == id && !deps.Player.Snapshot().Closed {
			return errConflict(c, "tour "+id+" is playing")
		}
		if err := deps.Tours.RemoveTour(c.UserContext(), id); err != nil {
			return errFromDomain(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
