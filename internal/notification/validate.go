package notification

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/nao1215/pushfan/pkg/pushgateway"
)

// requestValidator はリクエストボディを検証する。
// pushtoken タグはゲートウェイのトークン書式で検証する。
type requestValidator struct {
	validate *validator.Validate
}

// newRequestValidator はゲートウェイに合わせた検証器を生成する。
func newRequestValidator(gateway pushgateway.Gateway) (*requestValidator, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("pushtoken", func(fl validator.FieldLevel) bool {
		return gateway.IsValidToken(fl.Field().String())
	}); err != nil {
		return nil, fmt.Errorf("検証ルールの登録に失敗: %w", err)
	}
	return &requestValidator{validate: v}, nil
}

// fieldErrors は項目名ごとのエラー内容を返す。検証エラー以外はnil。
func (r *requestValidator) fieldErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return fields
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "必須項目です"
	case "pushtoken":
		return "プッシュトークンの書式が不正です"
	case "oneof":
		return fmt.Sprintf("%s のいずれかを指定してください", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "url":
		return "URLの書式が不正です"
	case "max":
		return fmt.Sprintf("%s文字以内で指定してください", fe.Param())
	case "min", "gt":
		return "値が小さすぎます"
	default:
		return fmt.Sprintf("不正な値です（%s）", fe.Tag())
	}
}

// bindJSON はリクエストボディを読み取って検証する。失敗した場合は400を返してfalseを返す。
func (s *Server) bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
		return false
	}
	if err := s.validate.validate.Struct(req); err != nil {
		if fields := s.validate.fieldErrors(err); fields != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストが不正です", "fields": fields})
			return false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
		return false
	}
	return true
}
