package policy

import "github.com/maxpert/topology/encoding"

func encodeEnvelope(env wireEnvelope) ([]byte, error) {
	return encoding.Marshal(env)
}
