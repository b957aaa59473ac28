package redis

// Redis namespaces defines the top-level key prefixes for different types of data
const (
	NamespaceQueue = "queue" // pub/sub channels and streams
)

// Redis contexts defines the second-level key prefixes for specific domains
const (
	ContextNotification = "notification"
)

// DLQStream receives notification events that could not be persisted.
const DLQStream = "queue:notification:dlq"
