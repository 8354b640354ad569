// Package validation checks pipeline and service configuration.
//
// Struct tag validation (go-playground/validator) covers declarative
// config such as queues and transport settings. The collecting Validator
// is used where rules depend on more than one field, for example an Action
// that must declare at least one handler, path or queue. Both report a
// single CONFIGURATION error listing every failing field.
//
//	type Queue struct {
//	    Name string `mapstructure:"name" validate:"required_without=URL"`
//	    URL  string `mapstructure:"url" validate:"required_without=Name"`
//	}
//	err := validation.Struct(q)
//
//	v := validation.New()
//	v.Custom(len(a.Functions) > 0 || len(a.Paths) > 0, "action", "must do something")
//	err := v.Validate()
package validation
