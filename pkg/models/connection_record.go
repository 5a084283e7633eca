package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownConnectionKind is returned when a record carries an unsupported kind.
var ErrUnknownConnectionKind = errors.New("unknown connection kind")

// ConnectionRecord is the storage and wire envelope of a connection: the variant fields are
// flattened next to a "kind" discriminator.
type ConnectionRecord struct {
	Unipile          *UnipileConnection
	WhatsAppBusiness *WhatsAppBusinessConnection
}

// NewConnectionRecord wraps a connection variant in its envelope.
func NewConnectionRecord(conn RoutableConnection) (*ConnectionRecord, error) {
	switch c := conn.(type) {
	case *UnipileConnection:
		return &ConnectionRecord{Unipile: c}, nil
	case *WhatsAppBusinessConnection:
		return &ConnectionRecord{WhatsAppBusiness: c}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownConnectionKind, conn)
	}
}

// Connection returns the wrapped variant through its routing view.
func (r *ConnectionRecord) Connection() RoutableConnection {
	switch {
	case r.Unipile != nil:
		return r.Unipile
	case r.WhatsAppBusiness != nil:
		return r.WhatsAppBusiness
	default:
		return nil
	}
}

// Kind returns the discriminator of the wrapped variant.
func (r *ConnectionRecord) Kind() ConnectionKind {
	if conn := r.Connection(); conn != nil {
		return conn.Kind()
	}

	return ""
}

// Base returns the shared fields of the wrapped variant.
func (r *ConnectionRecord) Base() *ConnectionBase {
	switch {
	case r.Unipile != nil:
		return &r.Unipile.ConnectionBase
	case r.WhatsAppBusiness != nil:
		return &r.WhatsAppBusiness.ConnectionBase
	default:
		return nil
	}
}

type kindProbe struct {
	Kind ConnectionKind `json:"kind"`
}

func (r ConnectionRecord) MarshalJSON() ([]byte, error) {
	switch {
	case r.Unipile != nil:
		return json.Marshal(struct {
			Kind ConnectionKind `json:"kind"`
			*UnipileConnection
		}{ConnectionKindUnipile, r.Unipile})
	case r.WhatsAppBusiness != nil:
		return json.Marshal(struct {
			Kind ConnectionKind `json:"kind"`
			*WhatsAppBusinessConnection
		}{ConnectionKindWhatsAppBusiness, r.WhatsAppBusiness})
	default:
		return nil, ErrUnknownConnectionKind
	}
}

func (r *ConnectionRecord) UnmarshalJSON(data []byte) error {
	var probe kindProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	r.Unipile = nil
	r.WhatsAppBusiness = nil

	switch probe.Kind {
	case ConnectionKindUnipile:
		var conn UnipileConnection
		if err := json.Unmarshal(data, &conn); err != nil {
			return err
		}

		conn.Status = NormalizeStatus(string(conn.Status))
		r.Unipile = &conn
	case ConnectionKindWhatsAppBusiness:
		var conn WhatsAppBusinessConnection
		if err := json.Unmarshal(data, &conn); err != nil {
			return err
		}

		conn.Status = NormalizeStatus(string(conn.Status))
		r.WhatsAppBusiness = &conn
	default:
		return fmt.Errorf("%w: %q", ErrUnknownConnectionKind, probe.Kind)
	}

	return nil
}
