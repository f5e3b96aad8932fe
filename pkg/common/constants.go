package common

const (
	RedisStreamScoringRun = "scoring.run"

	RedisStreamGroup    = "scoring-group"
	RedisStreamConsumer = "scoring-consumer"
)
