// Package codec serializes the business collection into the single text blob
// kept in durable storage and handed to the autofill bridge.
package codec

import (
	"encoding/json"
	"fmt"
	"strings"

	e "github.com/gartstein/bizprofile/internal/profile/errors"
	"github.com/gartstein/bizprofile/internal/profile/models"
)

// Version is the schema version written by Encode.
const Version = 1

var jsonMarshal = json.Marshal

type envelope struct {
	Version    int               `json:"version"`
	Businesses []models.Business `json:"businesses"`
}

// Encode writes the collection in order inside a versioned envelope.
func Encode(businesses []models.Business) (string, error) {
	if businesses == nil {
		businesses = []models.Business{}
	}
	data, err := jsonMarshal(envelope{Version: Version, Businesses: businesses})
	if err != nil {
		return "", fmt.Errorf("encode businesses: %w", err)
	}
	return string(data), nil
}

// Decode reads a blob written by Encode. Unversioned blobs holding a bare JSON
// array are accepted as version 0. Any failure wraps ErrPersistenceRead.
func Decode(blob string) ([]models.Business, error) {
	trimmed := strings.TrimSpace(blob)
	if trimmed == "" || trimmed == "null" {
		return []models.Business{}, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var legacy []models.Business
		if err := json.Unmarshal([]byte(trimmed), &legacy); err != nil {
			return nil, fmt.Errorf("%w: decode legacy blob: %v", e.ErrPersistenceRead, err)
		}
		if legacy == nil {
			legacy = []models.Business{}
		}
		return legacy, nil
	}

	var env envelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
		return nil, fmt.Errorf("%w: decode blob: %v", e.ErrPersistenceRead, err)
	}
	if env.Version < 1 || env.Version > Version {
		return nil, fmt.Errorf("%w: unsupported schema version %d", e.ErrPersistenceRead, env.Version)
	}
	if env.Businesses == nil {
		env.Businesses = []models.Business{}
	}
	return env.Businesses, nil
}

// MarshalIndent renders the collection as a plain indented JSON array, the
// shape used for user-facing exports.
func MarshalIndent(businesses []models.Business) (string, error) {
	if businesses == nil {
		businesses = []models.Business{}
	}
	data, err := json.MarshalIndent(businesses, "", "  ")
	if err != nil {
		return "", fmt.Errorf("export businesses: %w", err)
	}
	return string(data), nil
}
