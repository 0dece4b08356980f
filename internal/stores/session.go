package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionRecordVersionV1 = 1

var (
	ErrRedisUnavailable = errors.New("redis unavailable")
	ErrSessionCorrupt   = errors.New("session record corrupt")
)

// deleteAllSessionsLua removes every session record referenced by the user
// index set, then the index itself, in one round trip.
// KEYS[1] = user index set
// Returns the number of record keys that existed.
var deleteAllSessionsLua = redis.NewScript(`
local members = redis.call('SMEMBERS', KEYS[1])
local removed = 0
for _, key in ipairs(members) do
  removed = removed + redis.call('DEL', key)
end
redis.call('DEL', KEYS[1])
return removed
`)

type SessionRecord struct {
	SessionID string
	UserID    string
	CreatedAt int64
	ExpiresAt int64
}

type SessionStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewSessionStore(redisClient redis.UniversalClient, prefix string) *SessionStore {
	if prefix == "" {
		prefix = "hs"
	}
	return &SessionStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *SessionStore) key(userID, sessionID string) string {
	return s.prefix + ":" + userID + ":" + sessionID
}

func (s *SessionStore) indexKey(userID string) string {
	return s.prefix + "u:" + userID
}

// Save persists the record until its expiry and registers it in the user
// index. The index carries the same TTL refresh so it cannot outlive its
// newest member by more than the session lifetime.
func (s *SessionStore) Save(ctx context.Context, record *SessionRecord) error {
	encoded, err := encodeSessionRecord(record)
	if err != nil {
		return err
	}

	ttl := time.Until(time.Unix(record.ExpiresAt, 0))
	if ttl <= 0 {
		return errors.New("session record already expired")
	}

	key := s.key(record.UserID, record.SessionID)
	index := s.indexKey(record.UserID)

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, key, encoded, ttl)
	pipe.SAdd(ctx, index, key)
	pipe.Expire(ctx, index, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// DeleteAll removes every session for userID and reports how many existed.
// A user with no sessions yields zero, not an error.
func (s *SessionStore) DeleteAll(ctx context.Context, userID string) (int64, error) {
	removed, err := deleteAllSessionsLua.Run(ctx, s.redis, []string{s.indexKey(userID)}).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return removed, nil
}

func (s *SessionStore) Exists(ctx context.Context, userID, sessionID string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(userID, sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

// Get decodes a stored record. Missing keys map to redis.Nil for the caller
// to classify.
func (s *SessionStore) Get(ctx context.Context, userID, sessionID string) (*SessionRecord, error) {
	data, err := s.redis.Get(ctx, s.key(userID, sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	record, err := decodeSessionRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}
	return record, nil
}

func encodeSessionRecord(record *SessionRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionRecordVersionV1)

	if len(record.SessionID) > 255 {
		return nil, errors.New("sessionID too long")
	}
	buf.WriteByte(byte(len(record.SessionID)))
	buf.WriteString(record.SessionID)

	if len(record.UserID) > 255 {
		return nil, errors.New("userID too long")
	}
	buf.WriteByte(byte(len(record.UserID)))
	buf.WriteString(record.UserID)

	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodeSessionRecord(data []byte) (*SessionRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionRecordVersionV1 {
		return nil, errors.New("invalid session record version")
	}

	record := &SessionRecord{}

	sessionLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	sessionID := make([]byte, sessionLen)
	if _, err := io.ReadFull(reader, sessionID); err != nil {
		return nil, err
	}
	record.SessionID = string(sessionID)

	userLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	userID := make([]byte, userLen)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return nil, err
	}
	record.UserID = string(userID)

	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	return record, nil
}
