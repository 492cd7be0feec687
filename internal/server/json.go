package server

import (
	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"

	"github.com/bancapix/server/internal/common"
)

// JSONSerializer — сериализатор echo на goccy/go-json.
type JSONSerializer struct{}

func (JSONSerializer) Serialize(c echo.Context, i any, indent string) error {
	enc := json.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

// Deserialize читает тело запроса. Синтаксические ошибки и несовпадение
// типов полей — ErrInvalidInput.
func (JSONSerializer) Deserialize(c echo.Context, i any) error {
	err := json.NewDecoder(c.Request().Body).Decode(i)
	switch e := err.(type) {
	case nil:
		return nil
	case *json.UnmarshalTypeError:
		return common.InvalidInput("поле %s: ожидается %v", e.Field, e.Type)
	case *json.SyntaxError:
		return common.InvalidInput("некорректный JSON (позиция %d)", e.Offset)
	default:
		return err
	}
}
