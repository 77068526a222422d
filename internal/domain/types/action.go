package types

const (
	ActionRabbitMQConnected       = "rabbitmq_connected"
	ActionRabbitConnectionClosed  = "rabbitmq_connection_closed"
	ActionRabbitConnectionClosing = "rabbitmq_connection_closing"
	ActionRabbitReconnected       = "rabbitmq_reconnection_success"
	ActionRabbitPublishLocation   = "rabbitmq_publish_location"

	ActionDatabaseTransactionFailed = "database_transaction_failed"

	ActionDriverConnected     = "driver_connected"
	ActionDriverDisconnected  = "driver_disconnected"
	ActionSubscriberConnected = "subscriber_connected"
	ActionSubscriberLeft      = "subscriber_disconnected"
	ActionPublishLocation     = "publish_location"
	ActionIngestLocation      = "ingest_location"
	ActionSinkFailed          = "location_sink_failed"
	ActionSimulation          = "simulation_feed"
)
