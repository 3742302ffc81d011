// Package pgenv provisions and operates embedded PostgreSQL servers.
//
// pgenv resolves a requested server version against a release catalog,
// downloads and verifies the matching binary archive, installs it into a
// shared on-disk cache, and drives the server lifecycle: initialize the data
// directory, start the process, wait for readiness, stop. Installations are
// content-addressed by version and platform and shared between instances,
// tests, and processes.
//
// # Basic Usage
//
//	import "github.com/giantswarm/pgenv"
//
//	ctx := context.Background()
//
//	env, err := pgenv.NewEnvironment()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer env.Shutdown(ctx)
//
//	installed, err := env.Install(ctx, "16")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	inst, err := env.NewInstance(installed)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close()
//
//	if err := inst.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	if err := inst.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	// import "database/sql"
//	db, err := sql.Open("pgx", inst.URL("postgres"))
//	// Use db...
//
// # Parallel Testing
//
// Each instance gets its own data directory and listen port, so parallel
// tests can run one instance each without coordination:
//
//	for i := 0; i < 4; i++ {
//	    t.Run(fmt.Sprintf("test-%d", i), func(t *testing.T) {
//	        t.Parallel()
//	        inst, err := env.NewInstance(installed)
//	        if err != nil {
//	            t.Fatal(err)
//	        }
//	        defer inst.Close()
//	        // Initialize, Start, connect...
//	    })
//	}
//
// The first NewEnvironment call creates the process-level singleton;
// subsequent calls return the same environment so the download cache, the
// installation store, and the port registry are shared process-wide.
package pgenv
