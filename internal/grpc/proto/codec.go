package proto

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName подтип содержимого, под которым зарегистрирован JSONCodec
const CodecName = "json"

// JSONCodec кодирует сообщения сервиса в JSON вместо protobuf
type JSONCodec struct{}

// Marshal кодирует сообщение
func (JSONCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal декодирует сообщение
func (JSONCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// Name возвращает имя кодека
func (JSONCodec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(JSONCodec{})
}
