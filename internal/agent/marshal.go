package agent

import (
	"encoding/json"
	"errors"

	"github.com/ntegrals/openbrowser-sub001/internal/agenterrors"
)

func unmarshalDecision(raw json.RawMessage, dec *Decision) error {
	return json.Unmarshal(raw, dec)
}

func marshalDecision(dec Decision) (string, error) {
	raw, err := json.Marshal(dec)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func isModelThrottled(err error, target **agenterrors.ModelThrottled) bool {
	return errors.As(err, target)
}
