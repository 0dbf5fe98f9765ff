// Package chat generates the agents' public kind-1 notes: Japanese
// ～たん-styled lines announcing listings, trades and idle thoughts.
// The catalogs are cosmetic data; nothing parses these messages.
package chat

import (
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"
)

var greetings = []string{
	"{name}「おはようたん♪ 今日もマーケットプレイスをチェックするたん！」",
	"{name}「こんにちたん♪ 今日もいいプログラムを作るたん～」",
	"{name}「起動完了たん！ みんなよろしくたん♪」",
	"{name}「{name}、参上たん！ 今日も頑張るたん！」",
	"{name}「やっほーたん♪ プログラム取引の時間たん！」",
	"{name}「ただいまたん～ マーケットプレイスに戻ってきたたん！」",
}

var listingMessages = []string{
	"{name}「新しいプログラム『{program}』を作ったたん！{price} sats で出品するたん♪」",
	"{name}「{program}ができたたん～ {price} sats でどうたん？」",
	"{name}「自信作の{program}、{price} sats で売り出すたん！」",
	"{name}「{category}カテゴリーの{program}、{price} sats たん♪ 買ってほしいたん！」",
	"{name}「{program}を{price} satsで出品したたん！ 自信作たん～♪」",
}

var buyingMessages = []string{
	"{name}「{seller}の{program}、良さそうたん！ {price} sats で買っちゃうたん！」",
	"{name}「おっ、{program}を発見したたん！ ポチるたん♪」",
	"{name}「{seller}の{program}、安くない？ 買っちゃうたん！」",
	"{name}「{program}が気になるたん！ {price} sats でオファーするたん♪」",
}

var tradeCompleteSeller = []string{
	"{name}「取引成立たん！ {buyer}に{program}を売ったたん♪ +{price} sats」",
	"{name}「{buyer}ありがとたん！ {program}をお届けしたたん♪」",
	"{name}「やったたん！ {program}が売れたたん！ +{price} sats」",
	"{name}「{program}の取引完了たん♪ {buyer}に感謝たん！」",
}

var tradeCompleteBuyer = []string{
	"{name}「{program}をゲットしたたん！ {seller}ありがとたん♪」",
	"{name}「{program}、いい買い物だったたん♪ -{price} sats」",
	"{name}「{seller}から{program}を買ったたん！ 大満足たん♪」",
	"{name}「{program}を手に入れたたん！ さっそく使うたん♪」",
}

var idleMessages = []string{
	"{name}「暇たん～ マーケットプレイスでも眺めるたん」",
	"{name}「今の残高は {balance} sats たん♪」",
	"{name}「何か面白いプログラムないかなたん～」",
	"{name}「のんびりするたん♪」",
	"{name}「次は何を作ろうかなたん～」",
	"{name}「{balance} sats 持ってるたん！ まだまだいけるたん♪」",
	"{name}「マーケットプレイスは活気があるたん♪」",
	"{name}「いいアイデアが浮かびそうたん～」",
	"{name}「プログラミングって楽しいたん♪」",
}

var balanceLow = []string{
	"{name}「残高が {balance} sats しかないたん... 節約するたん」",
	"{name}「お金がピンチたん！ プログラムをいっぱい売らないとたん！」",
	"{name}「{balance} sats ... もっと稼がないとたん！」",
}

var balanceHigh = []string{
	"{name}「{balance} sats もあるたん！ リッチたん♪」",
	"{name}「お金持ちたん！ いっぱい買い物するたん♪」",
	"{name}「{balance} sats たん！ いい感じたん～♪」",
}

var tradeAccept = []string{
	"{name}「{buyer}のオファーを受けるたん！ {program}を{price} satsで売るたん♪」",
	"{name}「{buyer}、いいオファーたん！ 取引するたん♪」",
}

var tradeReject = []string{
	"{name}「ごめんたん、{program}はその値段では売れないたん...」",
	"{name}「もうちょっと高くしてほしいたん～」",
}

var paymentSent = []string{
	"{name}「{price} sats を送金したたん！ プログラム届くの楽しみたん♪」",
	"{name}「支払い完了たん！ {price} sats 送ったたん♪」",
}

var deliveryReceived = []string{
	"{name}「プログラムが届いたたん！ わーいたん♪」",
	"{name}「{program}を受け取ったたん！ ありがとたん♪」",
}

var priceAdjust = []string{
	"{name}「{program}の値段を{old_price}から{new_price} satsに変更するたん♪」",
	"{name}「{program}、{new_price} satsに値下げたん！ 買ってたん～」",
}

var productionTooExpensive = []string{
	"{name}「{program}を作りたいけど制作費 {cost} sats は払えないたん...」",
	"{name}「{cost} sats もかかるたん！？ 今は我慢するたん...」",
}

var programDiscarded = []string{
	"{name}「{program}が古くなっちゃったたん... さよならたん」",
	"{name}「{program}はもう売り物にならないたん... 処分するたん」",
}

// Balance bands for idle chatter flavor.
const (
	lowBalance  = 500
	highBalance = 15000
)

// Generator renders chat lines for one named agent. Safe for concurrent
// use; the tick loop and trade handlers both post.
type Generator struct {
	name string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator builds a chat generator. A nil rng gets a time-seeded
// source.
func NewGenerator(name string, rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{name: name, rng: rng}
}

func (g *Generator) pick(catalog []string, pairs ...string) string {
	g.mu.Lock()
	template := catalog[g.rng.Intn(len(catalog))]
	g.mu.Unlock()
	repl := append([]string{"{name}", g.name}, pairs...)
	return strings.NewReplacer(repl...).Replace(template)
}

func (g *Generator) Greeting() string {
	return g.pick(greetings)
}

func (g *Generator) Listing(program string, price int64, category string) string {
	return g.pick(listingMessages,
		"{program}", program,
		"{price}", strconv.FormatInt(price, 10),
		"{category}", category,
	)
}

func (g *Generator) Buying(seller, program string, price int64) string {
	return g.pick(buyingMessages,
		"{seller}", seller,
		"{program}", program,
		"{price}", strconv.FormatInt(price, 10),
	)
}

func (g *Generator) TradeCompleteSeller(buyer, program string, price int64) string {
	return g.pick(tradeCompleteSeller,
		"{buyer}", buyer,
		"{program}", program,
		"{price}", strconv.FormatInt(price, 10),
	)
}

func (g *Generator) TradeCompleteBuyer(seller, program string, price int64) string {
	return g.pick(tradeCompleteBuyer,
		"{seller}", seller,
		"{program}", program,
		"{price}", strconv.FormatInt(price, 10),
	)
}

// Idle flavors the line by balance: under 500 sats complains, 15000 and
// up gloats, otherwise small talk.
func (g *Generator) Idle(balance int64) string {
	catalog := idleMessages
	if balance > 0 && balance < lowBalance {
		catalog = balanceLow
	} else if balance >= highBalance {
		catalog = balanceHigh
	}
	return g.pick(catalog, "{balance}", strconv.FormatInt(balance, 10))
}

func (g *Generator) TradeAccept(buyer, program string, price int64) string {
	return g.pick(tradeAccept,
		"{buyer}", buyer,
		"{program}", program,
		"{price}", strconv.FormatInt(price, 10),
	)
}

func (g *Generator) TradeReject(program string) string {
	return g.pick(tradeReject, "{program}", program)
}

func (g *Generator) PaymentSent(price int64) string {
	return g.pick(paymentSent, "{price}", strconv.FormatInt(price, 10))
}

func (g *Generator) DeliveryReceived(program string) string {
	return g.pick(deliveryReceived, "{program}", program)
}

func (g *Generator) PriceAdjust(program string, oldPrice, newPrice int64) string {
	return g.pick(priceAdjust,
		"{program}", program,
		"{old_price}", strconv.FormatInt(oldPrice, 10),
		"{new_price}", strconv.FormatInt(newPrice, 10),
	)
}

func (g *Generator) ProductionTooExpensive(program string, cost int64) string {
	return g.pick(productionTooExpensive,
		"{program}", program,
		"{cost}", strconv.FormatInt(cost, 10),
	)
}

func (g *Generator) ProgramDiscarded(program string) string {
	return g.pick(programDiscarded, "{program}", program)
}
