// Command and library module amqp-cbs-auth authenticates a single IoT
// device to an Azure IoT Hub style AMQP endpoint using Claims-Based
// Security: it builds and signs SAS tokens (or forwards caller-supplied
// ones), negotiates them over a CBS management link, keeps the session
// authenticated by refreshing before expiry, and tears it down cleanly
// on request.
//
// # Layout
//
//	┌────────────────────────────────────────────────────────┐
//	│  cmd/iothub-authd   CLI driver: flags, signal handling  │
//	├────────────────────────────────────────────────────────┤
//	│  auth               state machine + token lifecycle     │
//	├────────────────────────────────────────────────────────┤
//	│  cbs                put_token/delete_token bridge       │
//	├────────────────────────────────────────────────────────┤
//	│  sastoken           SAS token construction (HMAC-SHA256)│
//	├────────────────────────────────────────────────────────┤
//	│  transport/amqpcbs  concrete cbs.Client over real AMQP  │
//	├────────────────────────────────────────────────────────┤
//	│  internal/obslog    structured logging + redaction      │
//	└────────────────────────────────────────────────────────┘
//
// auth.Authenticator is the only exported entry point most callers need:
// construct one with auth.Create, hand it a cbs.Bridge via Start, and
// drive it with DoWork on a ticker until Stop completes.
package amqpcbsauth
