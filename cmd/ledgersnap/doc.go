// Command ledgersnap pulls shielded-pool ledger state from a node into a
// local store and writes checksummed snapshots of its storage groups.
//
// Usage:
//
//	ledgersnap pull --endpoint http://127.0.0.1:9933
//	ledgersnap follow --interval 30s --metrics-addr :9464
//	ledgersnap extract --keys-file manta_pay_keys.json --format both
//	ledgersnap inspect data/snapshots/shards-20240501120000-0001.snap --decode
//	ledgersnap checkpoint show -o json
//	ledgersnap --endpoint wss://node.example:443 --ca-file ca.pem shell
package main
