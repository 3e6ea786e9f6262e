package outbox

const sessionEventSchema = `{
  "type": "object",
  "title": "SessionEvent",
  "properties": {
    "event_id": {"type": "string"},
    "user_id": {"type": "string"},
    "kind": {"type": "string", "enum": ["started", "ended"]},
    "entity_type": {"type": "string", "enum": ["activity", "status"]},
    "name": {"type": "string"},
    "start_time": {"type": "string", "format": "date-time"},
    "end_time": {"type": "string", "format": "date-time"},
    "unexpected_end": {"type": "boolean"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["event_id", "user_id", "kind", "entity_type", "name", "start_time", "occurred_at"],
  "additionalProperties": false
}`
