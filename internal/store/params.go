package store

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// LevelList decodes either a single level or a list of levels.
type LevelList []Level

func (l *LevelList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one != "" {
			*l = LevelList{Level(one)}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("level must be a string or list of strings")
	}
	for _, s := range many {
		*l = append(*l, Level(s))
	}
	return nil
}

// SinceValue decodes "5m" style strings or epoch-ms numbers into the
// string form Filter.Since expects.
type SinceValue string

func (s *SinceValue) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = SinceValue(str)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("since must be a duration string or epoch milliseconds")
	}
	*s = SinceValue(strconv.FormatInt(int64(n), 10))
	return nil
}
