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

const otpRecordVersionV1 = 1

// ErrOTPNotFound covers every consume miss: unknown email, superseded or
// already-used code, logical expiry, and hash mismatch. Collapsing them is
// deliberate; callers must not be able to tell a wrong code from an expired
// one.
var ErrOTPNotFound = errors.New("otp record not found")

// consumeOTPLua atomically performs GET→validate→mark-used on the single
// active record for an email.
// KEYS[1] = record key
// ARGV[1] = provided code hash (32 bytes)
// ARGV[2] = current unix timestamp (int string)
//
// Record layout: version(1) used(1) expiresAt(8 big-endian) hash(32)
// emailLen(2 big-endian) email(variable).
//
// Returns 1 on success, error string "not_found" on any miss.
var consumeOTPLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

local version = string.byte(data, 1)
if version ~= 1 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

if string.byte(data, 2) ~= 0 then
  return {err='not_found'}
end

local e1,e2,e3,e4,e5,e6,e7,e8 = string.byte(data, 3, 10)
local expiresAt = e1
for _, b in ipairs({e2,e3,e4,e5,e6,e7,e8}) do
  expiresAt = expiresAt * 256 + b
end

if tonumber(ARGV[2]) >= expiresAt then
  return {err='not_found'}
end

local storedHash = string.sub(data, 11, 42)
if storedHash ~= ARGV[1] then
  return {err='not_found'}
end

local newData = string.sub(data, 1, 1) .. string.char(1) .. string.sub(data, 3)
local ttlMs = redis.call('PTTL', KEYS[1])
if ttlMs <= 0 then
  return {err='not_found'}
end
redis.call('SET', KEYS[1], newData, 'PX', ttlMs)
return 1
`)

// invalidateOTPLua marks the active record used while preserving its
// retention TTL. Missing or already-used records are a no-op.
var invalidateOTPLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return 0
end
if string.byte(data, 2) ~= 0 then
  return 0
end
local newData = string.sub(data, 1, 1) .. string.char(1) .. string.sub(data, 3)
local ttlMs = redis.call('PTTL', KEYS[1])
if ttlMs <= 0 then
  redis.call('DEL', KEYS[1])
  return 0
end
redis.call('SET', KEYS[1], newData, 'PX', ttlMs)
return 1
`)

// saveOTPLua replaces the active record for an email, first moving any
// existing record to `<key>:v<seq>` with its remaining retention TTL. The
// sequence counter key shares the retention TTL so it cannot leak.
// KEYS[1] = active record key
// KEYS[2] = archive sequence counter key
// ARGV[1] = encoded new record
// ARGV[2] = retention TTL in milliseconds
var saveOTPLua = redis.NewScript(`
local existing = redis.call('GET', KEYS[1])
if existing then
  local ttlMs = redis.call('PTTL', KEYS[1])
  if ttlMs > 0 then
    local seq = redis.call('INCR', KEYS[2])
    redis.call('PEXPIRE', KEYS[2], ARGV[2])
    redis.call('SET', KEYS[1] .. ':v' .. seq, existing, 'PX', ttlMs)
  end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 1
`)

type OTPRecord struct {
	Email     string
	CodeHash  [32]byte
	ExpiresAt int64
	Used      bool
}

type OTPStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewOTPStore(redisClient redis.UniversalClient, prefix string) *OTPStore {
	if prefix == "" {
		prefix = "ho"
	}
	return &OTPStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *OTPStore) key(email string) string {
	return s.prefix + ":" + email
}

func (s *OTPStore) archiveSeqKey(email string) string {
	return s.key(email) + ":seq"
}

// Invalidate marks the active code for email as used. The invariant of at
// most one live record per email makes a single-key mutation sufficient.
func (s *OTPStore) Invalidate(ctx context.Context, email string) error {
	if err := invalidateOTPLua.Run(ctx, s.redis, []string{s.key(email)}).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Save writes a fresh record under the retention TTL. A record already
// present for the email is moved to a versioned archive key first, keeping
// its remaining retention TTL, so superseded and consumed codes stay
// queryable for audit until retention lapses. The logical expiry lives
// inside the record.
func (s *OTPStore) Save(ctx context.Context, record *OTPRecord, ttl time.Duration) error {
	encoded, err := encodeOTPRecord(record)
	if err != nil {
		return err
	}

	err = saveOTPLua.Run(ctx, s.redis,
		[]string{s.key(record.Email), s.archiveSeqKey(record.Email)},
		encoded,
		ttl.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Consume validates and burns the active code in one atomic script call.
func (s *OTPStore) Consume(ctx context.Context, email string, codeHash [32]byte, now time.Time) error {
	err := consumeOTPLua.Run(ctx, s.redis,
		[]string{s.key(email)},
		string(codeHash[:]),
		now.Unix(),
	).Err()
	if err == nil {
		return nil
	}

	if err.Error() == "not_found" || errors.Is(err, redis.Nil) {
		return ErrOTPNotFound
	}
	return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
}

// Get decodes the current record for email, used or not. Test and audit
// helper; the consume path never reads outside the script.
func (s *OTPStore) Get(ctx context.Context, email string) (*OTPRecord, error) {
	data, err := s.redis.Get(ctx, s.key(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrOTPNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return decodeOTPRecord(data)
}

func encodeOTPRecord(record *OTPRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(otpRecordVersionV1)
	if record.Used {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	buf.Write(record.CodeHash[:])

	if len(record.Email) > 65535 {
		return nil, errors.New("otp record email too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Email))); err != nil {
		return nil, err
	}
	buf.WriteString(record.Email)

	return buf.Bytes(), nil
}

func decodeOTPRecord(data []byte) (*OTPRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != otpRecordVersionV1 {
		return nil, errors.New("invalid otp record version")
	}

	used, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &OTPRecord{Used: used != 0}

	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	var emailLen uint16
	if err := binary.Read(reader, binary.BigEndian, &emailLen); err != nil {
		return nil, err
	}
	email := make([]byte, emailLen)
	if _, err := io.ReadFull(reader, email); err != nil {
		return nil, err
	}
	record.Email = string(email)

	return record, nil
}
