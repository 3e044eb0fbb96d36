// Package splitkit is a client-side feature-flag evaluation SDK: it
// synchronizes flag and segment definitions from a backend (or a local
// file, or Redis) into an in-memory cache, and evaluates targeting rules
// against that cache without any I/O on the evaluation hot path.
//
// A typical embedding application creates one Factory, waits for it to
// become ready, and pulls a Client and Manager handle from it:
//
//	factory, err := splitkit.NewFactory(apiKey)
//	if err != nil {
//		return err
//	}
//	if err := factory.BlockUntilReady(5 * time.Second); err != nil {
//		return err
//	}
//	defer factory.Destroy()
//
//	client := factory.Client()
//	treatment := client.GetTreatment("user-123", "new-checkout", nil)
package splitkit
