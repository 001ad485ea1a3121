package meshchat

func PrintBanner(p Printer, a *App) {
	p.Println()
	p.Println("Node started.")
	p.Printf("Name:           %s\n", a.cfg.Name)
	p.Printf("ID:             %s\n", shortID(a.Net.ID()))
	p.Printf("TCP:            %s\n", a.Net.ListenAddr())
	if udp := a.Net.DiscoveryAddr(); udp != nil {
		p.Printf("UDP:            %s\n", udp)
	}
	p.Println()
	PrintCommands(p)
	p.Println()
}

func PrintCommands(p Printer) {
	p.Println("Commands:")
	p.Println("    <message>                    - broadcast a message to every peer")
	p.Println("    /say <message>               - same as above")
	p.Println("    /to <peer-id> <message>      - send to one peer (id prefix is fine)")
	p.Println("    /connect <ip> <port>         - ask a node to connect back (UDP)")
	p.Println("    /dial <host:port>            - open a TCP link directly")
	p.Println("    /peers                       - show connected peers")
	p.Println("    /me                          - prints your info")
	p.Println("    /events                      - list bound network events")
	p.Println("    /quit                        - exit")
}
