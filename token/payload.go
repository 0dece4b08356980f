package token

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const payloadVersionCurrent = 1

// Payload is the plaintext content of a session token. ExpiresAt and
// IssuedAt are unix seconds.
type Payload struct {
	UserID    string
	SessionID string
	IssuedAt  int64
	ExpiresAt int64
}

func encodePayload(p *Payload) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(payloadVersionCurrent)

	if len(p.UserID) > 255 {
		return nil, errors.New("userID too long")
	}
	buf.WriteByte(byte(len(p.UserID)))
	buf.WriteString(p.UserID)

	if len(p.SessionID) > 255 {
		return nil, errors.New("sessionID too long")
	}
	buf.WriteByte(byte(len(p.SessionID)))
	buf.WriteString(p.SessionID)

	if err := binary.Write(&buf, binary.BigEndian, p.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, p.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodePayload(data []byte) (*Payload, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != payloadVersionCurrent {
		return nil, errors.New("invalid payload version")
	}

	p := &Payload{}

	userLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	userID := make([]byte, userLen)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return nil, err
	}
	p.UserID = string(userID)

	sessionLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	sessionID := make([]byte, sessionLen)
	if _, err := io.ReadFull(reader, sessionID); err != nil {
		return nil, err
	}
	p.SessionID = string(sessionID)

	if err := binary.Read(reader, binary.BigEndian, &p.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &p.ExpiresAt); err != nil {
		return nil, err
	}

	if reader.Len() != 0 {
		return nil, errors.New("trailing payload bytes")
	}

	return p, nil
}
