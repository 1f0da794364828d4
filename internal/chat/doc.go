// Package chat implements the chat-streaming orchestrator: conversation
// resolution, context assembly from short- and long-term memory, the
// push-to-pull stream bridge over the model provider, and the background
// persistence pipeline that records the exchange after the terminal event.
//
// One exchange moves through resolve, assemble, stream. The caller sees
// message events as tokens arrive and exactly one terminal event, done or
// error. Durable writes happen only after a successful terminal event and
// never delay the visible response; a failed or cancelled stream persists
// nothing.
package chat
