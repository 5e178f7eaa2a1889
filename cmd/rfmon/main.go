package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/rfnode/rfnode.go/pkg/core/fault"
	"github.com/rfnode/rfnode.go/pkg/link/mqtt"
	"github.com/rfnode/rfnode.go/pkg/wire"
)

var (
	mqttURL = "mqtt://localhost:1883/rfnode/"
)

func init() {
	if val := os.Getenv("RFNODE_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}

	q.Sub("#", mqtt.Handler(func(topic string, payload []byte) {
		if strings.HasSuffix(topic, "/meta") {
			log.Printf("%s: %s", topic, string(payload))
			return
		}
		frame, _, err := wire.Decode(payload)
		if err != nil {
			log.Printf("%s: bad frame: %v", topic, err)
			return
		}
		msg, err := wire.DecodeMessage(frame)
		if err != nil {
			log.Printf("%s: bad %v payload: %v", topic, frame.Kind, err)
			return
		}
		switch m := msg.(type) {
		case *wire.Telemetry:
			log.Printf("%s: [tlm] seq=%d t=%d gain=%d mean=%d peak=%d@%d degraded=%v",
				topic, m.Seq, m.Timestamp, m.Gain, m.MeanPower, m.PeakPower, m.PeakOffset, m.Degraded())
		case *wire.Command:
			log.Printf("%s: [cmd] seq=%d mask=%#x div=%d gain=%d interval=%d",
				topic, m.Seq, m.Mask, m.SampleRateDiv, m.Gain, m.ReportInterval)
		case *wire.ErrorReply:
			log.Printf("%s: [err] seq=%d code=%v field=%v", topic, m.Seq, m.Code, m.Field)
		case *wire.FaultReport:
			var parts []string
			for i, c := range m.Counters {
				if c.Count == 0 {
					continue
				}
				parts = append(parts, fmt.Sprintf("%v=%d@%d", fault.Kind(i), c.Count, c.LastTick))
			}
			if len(parts) == 0 {
				parts = append(parts, "clean")
			}
			log.Printf("%s: [flt] seq=%d %s", topic, m.Seq, strings.Join(parts, " "))
		}
	}))
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln(token.Error())
	}
	<-(chan struct{})(nil)
}
