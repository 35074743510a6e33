// Package bootstrap starts a foundry application. It loads the configuration and parameters,
// opens the HTTP listener, connects the ODM when one is configured and binds the actions
// registered by the controllers.
//
// Usage:
//
//	b, err := bootstrap.New(bootstrap.RunOptions{BaseDir: "app"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := b.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Shutdown(context.Background())
//
//	// Wait for shutdown signal
//	b.WaitForShutdown(ctx)
package bootstrap
