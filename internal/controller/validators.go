package controller

import (
	"intellearn_backend/internal/model"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// RegisterValidators adds the custom binding tags used by request structs.
// It must run before the first request is bound.
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		err = v.RegisterValidation("user_role", func(fl validator.FieldLevel) bool {
			return model.UserRole(fl.Field().String()).Valid()
		})
	})
	return err
}
