// Package tempo serves a live interpreted model to plotting clients over
// a WebSocket subscription channel.
//
// An App loads model source, hosts it in an embedded interpreter and
// answers the model commands (ClassInfo, RootClass, ModelStructure,
// FunctionInfo, Subscribe, Unsubscribe, Run). Subscribed variables are
// pushed to clients after every run step.
//
// Usage:
//
//	cfg, err := config.LoadOrDefault("tempo.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	app, err := tempo.New(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := app.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package tempo
