package ntske

import (
	"encoding/hex"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type CookieArrayMarshaler struct {
	Cookies [][]byte
}

func (m CookieArrayMarshaler) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for _, c := range m.Cookies {
		enc.AppendString(hex.EncodeToString(c))
	}
	return nil
}

type RecordMarshaler struct {
	Rec Record
}

func (m RecordMarshaler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint16("Type", m.Rec.Type)
	enc.AddBool("Critical", m.Rec.Critical)
	enc.AddInt("BodyLen", len(m.Rec.Body))
	return nil
}

func logResult(log *zap.Logger, res *Result) {
	log.Debug("NTSKE data",
		zap.String("server", res.Server),
		zap.Uint16("port", res.Port),
		zap.String("algo", AlgorithmName(res.Algorithm)),
		zap.Duration("duration", res.Duration),
		zap.Array("cookies", CookieArrayMarshaler{Cookies: res.Cookies.snapshot()}))
}
