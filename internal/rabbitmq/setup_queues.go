package rabbitmq

// Exchange — direct‑обменник событий членства.
const Exchange = "membership"

// RoutingKeyChanged — ключ маршрутизации для models.MembershipChanged.
const RoutingKeyChanged = "changed"

// QueueConfig описывает очередь и ключ, которым она привязана к обменнику.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetMembershipQueues возвращает очереди, которые объявляются при настройке канала.
func GetMembershipQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: "membership.notifications", RoutingKey: RoutingKeyChanged},
	}
}
