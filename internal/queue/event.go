// Package queue carries task messages over RabbitMQ: topology, a publisher
// that reconnects on demand and a consumer loop that reconnects forever.
package queue

// DefaultSender is used when a pushed task does not name its sender.
const DefaultSender = "Template API"

// TaskMessage is the JSON payload exchanged between the API and the worker.
type TaskMessage struct {
	Content string `json:"content"`
	Sender  string `json:"sender"`
}
