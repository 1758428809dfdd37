package base

import (
	"errors"
	"strings"
)

type Strategy int32

const (
	Star Strategy = iota
	Ring
)

const DefaultStrategy = Star

var strategyNames = map[Strategy]string{
	Star: `STAR`,
	Ring: `RING`,
}

func (s Strategy) String() string {
	return strategyNames[s]
}

var errInvalidStrategy = errors.New("invalid strategy")

// ParseStrategy accepts the names case-insensitively.
func ParseStrategy(s string) (Strategy, error) {
	for k, v := range strategyNames {
		if strings.ToUpper(s) == v {
			return k, nil
		}
	}
	return 0, errInvalidStrategy
}
