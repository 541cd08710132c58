package domain

// Intent labels attached to turns and used for model routing and flow
// selection. Stored as plain strings on ConversationTurn.
const (
	IntentOrders          = "orders"
	IntentRecommendations = "recommendations"
	IntentStoreInfo       = "store_info"
	IntentGreeting        = "greeting"
	IntentGeneral         = "general"
)
