package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

const (
	contentTypeJSON = "application/json"
	contentTypeCBOR = "application/cbor"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2) so the same
// result always produces the same bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("server: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("server: CBOR decoder initialization failed: " + err.Error())
	}
}

func isCBOR(header string) bool {
	mt, _, err := mime.ParseMediaType(header)
	return err == nil && mt == contentTypeCBOR
}

// decodeRequest reads the body as CBOR or JSON depending on Content-Type.
func decodeRequest(r *http.Request, v any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if isCBOR(r.Header.Get("Content-Type")) {
		if err := decMode.Unmarshal(body, v); err != nil {
			return fmt.Errorf("decode cbor: %w", err)
		}
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

// writeResponse encodes v as CBOR when the client accepts it and as JSON
// otherwise.
func writeResponse(w http.ResponseWriter, r *http.Request, code int, v any) {
	if isCBOR(r.Header.Get("Accept")) {
		data, err := encMode.Marshal(v)
		if err != nil {
			http.Error(w, "encode response", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", contentTypeCBOR)
		w.WriteHeader(code)
		w.Write(data)
		return
	}
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
