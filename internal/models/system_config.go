package models

import "time"

type ConfigDataType string

const (
	ConfigString  ConfigDataType = "string"
	ConfigNumber  ConfigDataType = "number"
	ConfigBoolean ConfigDataType = "boolean"
	ConfigJSON    ConfigDataType = "json"
)

func (t ConfigDataType) Valid() bool {
	switch t {
	case ConfigString, ConfigNumber, ConfigBoolean, ConfigJSON:
		return true
	}
	return false
}

type SystemConfig struct {
	ID          string         `json:"id"`
	Key         string         `json:"key"`
	Value       string         `json:"value"`
	Description string         `json:"description,omitempty"`
	DataType    ConfigDataType `json:"data_type"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
