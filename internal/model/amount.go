package model

import (
	"encoding/json"

	"github.com/splitsquad/splitpay/internal/common"
)

// TokenAmount is a token quantity held in base units internally and rendered
// as a decimal string (e.g. "12.500000") on every JSON boundary. Floats never
// appear on the wire.
type TokenAmount uint64

func (a TokenAmount) String() string {
	return common.FormatAmount(uint64(a))
}

func (a TokenAmount) MarshalJSON() ([]byte, error) {
	return json.Marshal(common.FormatAmount(uint64(a)))
}

func (a *TokenAmount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	base, err := common.ParseAmount(s)
	if err != nil {
		return err
	}
	*a = TokenAmount(base)
	return nil
}
