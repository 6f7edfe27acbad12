// Package cbs implements the Claims-Based Security bridge: submitting
// put_token/delete_token operations against a peer and demultiplexing
// their completions, the way Azure Service Bus and Event Hub clients
// negotiate claims over an AMQP $cbs management link.
package cbs
