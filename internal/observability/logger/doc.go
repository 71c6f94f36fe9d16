// Package logger provee el logger Zap del servicio con scoping por request.
//
// # Diseño
//
//   - Singleton: una instancia global inicializada con Init() desde cmd/.
//   - Context scoping: el middleware de request inyecta un logger con
//     request_id; los services lo recuperan con From(ctx).
//   - Entornos: "dev" usa consola con colores, "prod" usa JSON.
//   - Tests: Replace() permite inyectar zap.NewNop() o un observer.
//
// # Uso
//
//	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level})
//	defer logger.Sync()
//
//	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("captcha"))
//	log.Info("challenge sent", logger.Channel("sms"))
package logger
