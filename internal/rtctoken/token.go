// Package rtctoken parses and verifies the signed access credentials accepted by the
// realtime SDK (access token version 006). Credentials are built with
// github.com/AgoraIO-Community/go-tokenbuilder.
//
// Layout of a token:
//
//	"006" + appID + base64(content)
//	content   = string(signature) | uint32 crc32(channel) | uint32 crc32(uid) | string(message)
//	message   = uint32 salt | uint32 ts | uint16 n | n * (uint16 privilege, uint32 expireTs)
//	signature = hmac-sha256(appCertificate, appID + channel + uid + message)
//
// All integers are little endian, strings are prefixed with their uint16 length.
package rtctoken

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"strconv"
	"time"
)

// Version prefix of the tokens this package understands.
const Version = "006"

const appIDLength = 32

// Privilege a capability granted by a token.
type Privilege uint16

// Privileges understood by the realtime SDK.
const (
	JoinChannel        Privilege = 1
	PublishAudioStream Privilege = 2
	PublishVideoStream Privilege = 3
	PublishDataStream  Privilege = 4
)

// Role privilege level of a token.
type Role int

// Roles.
const (
	RolePublisher  Role = 1
	RoleSubscriber Role = 2
)

// Token errors.
var (
	ErrMalformed        = errors.New("malformed token")
	ErrInvalidSignature = errors.New("token signature does not match")
)

// Claims decoded content of a token.
type Claims struct {
	AppID      string
	Salt       uint32
	IssuedTs   uint32
	Privileges map[Privilege]uint32
}

// CanPublish reports whether the claims allow publishing any media.
func (c Claims) CanPublish() bool {
	for _, p := range []Privilege{PublishAudioStream, PublishVideoStream, PublishDataStream} {
		if _, ok := c.Privileges[p]; ok {
			return true
		}
	}

	return false
}

// Role derives the privilege level of the claims.
func (c Claims) Role() Role {
	if c.CanPublish() {
		return RolePublisher
	}

	return RoleSubscriber
}

// ExpiresAt returns the join privilege expiry.
func (c Claims) ExpiresAt() time.Time {
	return time.Unix(int64(c.Privileges[JoinChannel]), 0).UTC()
}

// Parse verifies a token against the credentials, channel and uid it should have been issued for.
func Parse(token, appCertificate, channelName string, uid uint32) (Claims, error) {
	account := uidString(uid)
	if len(token) <= len(Version)+appIDLength || token[:len(Version)] != Version {
		return Claims{}, ErrMalformed
	}

	appID := token[len(Version) : len(Version)+appIDLength]
	raw, err := base64.StdEncoding.DecodeString(token[len(Version)+appIDLength:])
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	r := bytes.NewReader(raw)
	signature, err := unpackBytes(r)
	if err != nil {
		return Claims{}, err
	}
	crcChannel, err := unpackUint32(r)
	if err != nil {
		return Claims{}, err
	}
	crcUID, err := unpackUint32(r)
	if err != nil {
		return Claims{}, err
	}
	msg, err := unpackBytes(r)
	if err != nil {
		return Claims{}, err
	}

	if crcChannel != crc32.ChecksumIEEE([]byte(channelName)) || crcUID != crc32.ChecksumIEEE([]byte(account)) {
		return Claims{}, ErrInvalidSignature
	}

	expected := sign(appCertificate, appID, channelName, account, msg)
	if !hmac.Equal(signature, expected) {
		return Claims{}, ErrInvalidSignature
	}

	claims, err := unpackMessage(msg)
	if err != nil {
		return Claims{}, err
	}
	claims.AppID = appID

	return claims, nil
}

func sign(appCertificate, appID, channelName, account string, msg []byte) []byte {
	mac := hmac.New(sha256.New, []byte(appCertificate))
	mac.Write([]byte(appID))
	mac.Write([]byte(channelName))
	mac.Write([]byte(account))
	mac.Write(msg)
	return mac.Sum(nil)
}

func unpackMessage(msg []byte) (Claims, error) {
	r := bytes.NewReader(msg)
	salt, err := unpackUint32(r)
	if err != nil {
		return Claims{}, err
	}
	ts, err := unpackUint32(r)
	if err != nil {
		return Claims{}, err
	}
	n, err := unpackUint16(r)
	if err != nil {
		return Claims{}, err
	}

	privileges := make(map[Privilege]uint32, n)
	for i := uint16(0); i < n; i++ {
		key, err := unpackUint16(r)
		if err != nil {
			return Claims{}, err
		}
		value, err := unpackUint32(r)
		if err != nil {
			return Claims{}, err
		}
		privileges[Privilege(key)] = value
	}

	return Claims{Salt: salt, IssuedTs: ts, Privileges: privileges}, nil
}

func unpackUint16(r *bytes.Reader) (uint16, error) {
	var v uint16
	err := binary.Read(r, binary.LittleEndian, &v)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return v, nil
}

func unpackUint32(r *bytes.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.LittleEndian, &v)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return v, nil
}

func unpackBytes(r *bytes.Reader) ([]byte, error) {
	n, err := unpackUint16(r)
	if err != nil {
		return nil, err
	}

	b := make([]byte, n)
	_, err = io.ReadFull(r, b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return b, nil
}

func uidString(uid uint32) string {
	if uid == 0 {
		return ""
	}

	return strconv.FormatUint(uint64(uid), 10)
}
