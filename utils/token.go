package utils

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// DeviceClaims is the session token attached as Bearer auth on sync requests.
type DeviceClaims struct {
	OrgId    string `json:"org_id"`
	DeviceId string `json:"device_id"`
	jwt.StandardClaims
}

var jwtSecret = []byte(getJwtSecret())

func getJwtSecret() string {
	secret := os.Getenv("DEVICE_TOKEN_SECRET")
	if secret == "" {
		return "SetLedger-Device-Secret"
	}
	return secret
}

func deviceTokenLifespanHours() int {
	if v, err := strconv.Atoi(os.Getenv("DEVICE_TOKEN_HOUR_LIFESPAN")); err == nil && v > 0 {
		return v
	}
	return 72
}

func DeviceTokenGenerate(orgId string, deviceId string) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &DeviceClaims{
		OrgId:    orgId,
		DeviceId: deviceId,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(time.Hour * time.Duration(deviceTokenLifespanHours())).Unix(),
			IssuedAt:  time.Now().Unix(),
		},
	})
	return t.SignedString(jwtSecret)
}

func DeviceTokenValidate(token string) (*DeviceClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &DeviceClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*DeviceClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid device token")
	}
	return claims, nil
}
