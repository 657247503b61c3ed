// Command sitepdf captures websites as indexed PDF documents.
package main

import "github.com/JakeFAU/sitepdf/cmd"

func main() {
	cmd.Execute()
}
