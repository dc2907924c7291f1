package telemetry

// Span and attribute names used for instrumentation.
const (
	SpanNarrationLoad = "player.narration_load"
	SpanProgressSave  = "player.progress_save"
	SpanProgressLoad  = "player.progress_load"
	SpanStopTrigger   = "player.stop_trigger"
	SpanProgressSync  = "sync.progress_upsert"

	AttrTourID  = "audiotour.tour_id"
	AttrStopID  = "audiotour.stop_id"
	AttrReason  = "audiotour.reason"
	AttrSession = "audiotour.session_id"
)
