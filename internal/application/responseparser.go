package application

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ericfisherdev/relaygate/internal/domain/model"
)

// ParseResponse interprets body according to the endpoint's declared
// response type. JSON bodies are decoded; xml and raw bodies pass through
// unchanged.
func ParseResponse(responseType model.ResponseType, body []byte) (*model.Result, error) {
	switch responseType {
	case model.ResponseTypeJSON:
		var v any
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return nil, &model.ParseError{ResponseType: responseType, Err: err}
		}
		if dec.More() {
			return nil, &model.ParseError{ResponseType: responseType, Err: fmt.Errorf("unexpected data after JSON value")}
		}
		return &model.Result{ResponseType: responseType, JSON: v}, nil

	case model.ResponseTypeXML, model.ResponseTypeRaw:
		return &model.Result{ResponseType: responseType, Raw: body}, nil

	default:
		return nil, &model.ParseError{ResponseType: responseType, Err: fmt.Errorf("unknown response type %q", responseType)}
	}
}
