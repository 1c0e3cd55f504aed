package domain

import "encoding/json"

func marshalStringSlice(s []string) ([]byte, error) {
	return json.Marshal(s)
}

func unmarshalStringSlice(data []byte) ([]string, error) {
	var s []string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return s, nil
}
