package store

// Type identifies a durable-tier backend.
type Type string

const (
	// TypeMongoDB selects the MongoDB backend.
	TypeMongoDB Type = "mongodb"
)
