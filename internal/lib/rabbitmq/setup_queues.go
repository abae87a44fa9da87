package rabbitmq

// QueueConfig описывает очередь и ключ маршрутизации в exchange "notifications".
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetNotificationQueues возвращает очереди писем CRM:
// приветственные письма при регистрации и напоминания о продлении.
func GetNotificationQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: "notification.welcome", RoutingKey: "welcome"},
		{QueueName: "notification.renewal", RoutingKey: "renewal"},
	}
}
