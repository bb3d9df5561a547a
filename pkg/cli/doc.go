/*
Package cli provides helpers shared by the tap command.

Errors:

Commands return *ConfigError for configuration problems and *CommandError for
failures while running. ExitCode maps them to process exit codes so scripts
can tell a bad configuration (2) from a failed command (1).

Output Formats:

Capture records are written in one of the formats accepted by ParseFormat:

	format, err := cli.ParseFormat("csv")
	if err != nil {
		return err
	}
	exporter := cli.NewExporter(format, true)
	err = exporter.Export(ctx, records, os.Stdout)

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()
*/
package cli
