package messaging

import "example.com/backstage/services/charity/config"

func configWithoutQueue() config.AzureConfig {
	return config.AzureConfig{QueueName: "charity-notifications"}
}
