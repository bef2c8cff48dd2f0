package eventbus

import "time"

const day = 24 * time.Hour

// TopicDescriptor describes a topic the platform owns.
type TopicDescriptor struct {
	Name        string
	Partitions  int
	Retention   time.Duration
	Description string
}

// RetentionMillis is the retention.ms topic setting.
func (d TopicDescriptor) RetentionMillis() int64 {
	return d.Retention.Milliseconds()
}

// Platform topics.
const (
	TopicCredit       = "credit.events"
	TopicPortfolio    = "portfolio.events"
	TopicCompliance   = "compliance.events"
	TopicReport       = "report.events"
	TopicNotification = "notification.events"
	TopicTeam         = "team.events"
	TopicMarketplace  = "marketplace.events"
	TopicBlockchain   = "blockchain.events"
	TopicDeadLetter   = DefaultDeadLetterTopic
)

var topicRegistry = []TopicDescriptor{
	{Name: TopicCredit, Partitions: 3, Retention: 7 * day, Description: "Credit lifecycle events"},
	{Name: TopicPortfolio, Partitions: 3, Retention: 7 * day, Description: "Portfolio changes"},
	{Name: TopicCompliance, Partitions: 2, Retention: 30 * day, Description: "Compliance updates"},
	{Name: TopicReport, Partitions: 2, Retention: 7 * day, Description: "Report generation"},
	{Name: TopicNotification, Partitions: 3, Retention: 3 * day, Description: "User notifications"},
	{Name: TopicTeam, Partitions: 2, Retention: 7 * day, Description: "Team management"},
	{Name: TopicMarketplace, Partitions: 3, Retention: 3 * day, Description: "Marketplace activity"},
	{Name: TopicBlockchain, Partitions: 3, Retention: 30 * day, Description: "On-chain events"},
	{Name: TopicDeadLetter, Partitions: 1, Retention: 90 * day, Description: "Failed messages for investigation"},
}

// DefaultTopics returns a copy of the platform topic registry.
func DefaultTopics() []TopicDescriptor {
	out := make([]TopicDescriptor, len(topicRegistry))
	copy(out, topicRegistry)
	return out
}

// LookupTopic finds a registry entry by name.
func LookupTopic(name string) (TopicDescriptor, bool) {
	for _, d := range topicRegistry {
		if d.Name == name {
			return d, true
		}
	}
	return TopicDescriptor{}, false
}
