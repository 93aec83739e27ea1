package kafka

// Topic definitions for Kafka event streaming
const (
	// TopicPremiumsIngested carries one premium.IngestionEvent per collection run and ticker
	TopicPremiumsIngested = "premiums.ingested"
)
