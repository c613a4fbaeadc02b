package cel

// DropFilterExamples are expressions commonly configured under
// queue.drop_filters. For envelope deliveries the payload is the inner
// event object, so fields such as bot_id sit directly under payload.
var DropFilterExamples = map[string]string{
	"bot_messages":      `has(payload.bot_id) && payload.bot_id != ""`,
	"message_subtypes":  `type == "message" && has(payload.subtype)`,
	"anonymous_actor":   `actor_id == "" && type in ["message", "app_mention"]`,
	"single_tenant":     `tenant_id == "T_BLOCKED"`,
	"channel_allowlist": `has(payload.channel) && !(payload.channel in ["C1", "C2"])`,
}
