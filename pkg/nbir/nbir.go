// Package nbir defines the serialized notebook interchange form: a flat
// document of named cell definitions that can be compiled without any
// authoring file on disk.
package nbir

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Cell kinds. A plain cell holds statements; function and class cells
// carry a top-level declaration; a setup cell holds context-block code.
const (
	KindCell     = "cell"
	KindFunction = "function"
	KindClass    = "class"
	KindSetup    = "setup"
)

// CurrentVersion is the document version this package reads and writes.
const CurrentVersion = 1

var (
	ErrInvalidDocument = errors.New("invalid notebook document")
	ErrVersion         = errors.New("unsupported notebook version")
)

// CellDef is one cell in the interchange document.
type CellDef struct {
	Name   string            `json:"name"`
	Code   string            `json:"code"`
	Kind   string            `json:"kind"`
	Config map[string]any    `json:"config,omitempty"`
	Meta   map[string]string `json:"meta,omitempty"`
}

// Document is a complete serialized notebook.
type Document struct {
	Version int               `json:"version"`
	App     string            `json:"app,omitempty"`
	Cells   []CellDef         `json:"cells"`
	Meta    map[string]string `json:"meta,omitempty"`
}

const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["version", "cells"],
  "properties": {
    "version": {"type": "integer", "minimum": 1},
    "app": {"type": "string"},
    "cells": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "code", "kind"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "code": {"type": "string"},
          "kind": {"enum": ["cell", "function", "class", "setup"]},
          "config": {"type": "object"},
          "meta": {"type": "object", "additionalProperties": {"type": "string"}}
        }
      }
    },
    "meta": {"type": "object", "additionalProperties": {"type": "string"}}
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(documentSchema)

// Decode validates raw JSON against the document schema and unmarshals
// it. Schema violations are collected into a single error so a caller
// sees every problem at once.
func Decode(raw []byte) (*Document, error) {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	if !result.Valid() {
		msg := ""
		for _, desc := range result.Errors() {
			if msg != "" {
				msg += "; "
			}

			msg += desc.String()
		}

		return nil, fmt.Errorf("%w: %s", ErrInvalidDocument, msg)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	if doc.Version > CurrentVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, doc.Version)
	}

	return &doc, nil
}

// Encode serializes a document, stamping the current version.
func Encode(doc *Document) ([]byte, error) {
	doc.Version = CurrentVersion

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode notebook: %w", err)
	}

	return raw, nil
}
