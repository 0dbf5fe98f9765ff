package progen

// Template is one family of generated programs: a name pattern plus a
// Python skeleton that gets a per-variant body, main block, description,
// and iteration limit spliced in. Skeletons use str.format conventions:
// {field} marks a placeholder, doubled braces are literal braces.
type Template struct {
	NamePattern  string
	Variants     []string
	Skeleton     string
	BodyVariants map[string]string
	MainVariants map[string]string
	Descriptions map[string]string
	Limits       map[string]int
	BasePrice    int64
}

// catalog holds the template families per category. Every entry renders
// to a complete, runnable Python program.
var catalog = map[string][]Template{
	"math":            {fibonacciFamily, primeFamily},
	"text":            {stringFamily},
	"data_structures": {stackFamily},
	"crypto":          {base64Family},
	"utilities":       {fileSizeFamily},
	"generators":      {passwordFamily},
	"converters":      {temperatureFamily},
	"validators":      {emailFamily},
}

var fibonacciFamily = Template{
	NamePattern: "fibonacci-{variant}",
	Variants:    []string{"recursive", "iterative", "memoized", "generator"},
	Skeleton: `"""Fibonacci {variant} calculator.

Computes Fibonacci numbers using the {variant} approach.
"""


def fibonacci_{variant}(n):
    """Return the n-th Fibonacci number ({variant})."""
{body}


def main():
    print("=== Fibonacci ({variant}) ===")
    for i in range({limit}):
        print(f"F({{i}}) = {{fibonacci_{variant}(i)}}")


if __name__ == "__main__":
    main()
`,
	BodyVariants: map[string]string{
		"recursive": `    if n <= 0:
        return 0
    if n == 1:
        return 1
    return fibonacci_recursive(n - 1) + fibonacci_recursive(n - 2)`,
		"iterative": `    if n <= 0:
        return 0
    a, b = 0, 1
    for _ in range(n):
        a, b = b, a + b
    return a`,
		"memoized": `    memo = {}
    def _fib(k):
        if k in memo:
            return memo[k]
        if k <= 0:
            return 0
        if k == 1:
            return 1
        memo[k] = _fib(k - 1) + _fib(k - 2)
        return memo[k]
    return _fib(n)`,
		"generator": `    a, b = 0, 1
    for _ in range(n + 1):
        a, b = b, a + b
    return a`,
	},
	Limits:    map[string]int{"recursive": 15, "iterative": 20, "memoized": 30, "generator": 20},
	BasePrice: 11,
}

var primeFamily = Template{
	NamePattern: "prime-{variant}",
	Variants:    []string{"checker", "sieve", "factorizer", "counter"},
	Skeleton: `"""Prime number {variant}.

{description}
"""


{body}


def main():
    print("=== Prime {variant} ===")
{main_body}


if __name__ == "__main__":
    main()
`,
	BodyVariants: map[string]string{
		"checker": `def is_prime(n):
    """Check if a number is prime."""
    if n < 2:
        return False
    if n < 4:
        return True
    if n % 2 == 0 or n % 3 == 0:
        return False
    i = 5
    while i * i <= n:
        if n % i == 0 or n % (i + 2) == 0:
            return False
        i += 6
    return True`,
		"sieve": `def sieve_of_eratosthenes(limit):
    """Return all primes up to limit using Sieve of Eratosthenes."""
    if limit < 2:
        return []
    is_prime = [True] * (limit + 1)
    is_prime[0] = is_prime[1] = False
    for i in range(2, int(limit**0.5) + 1):
        if is_prime[i]:
            for j in range(i * i, limit + 1, i):
                is_prime[j] = False
    return [i for i in range(limit + 1) if is_prime[i]]`,
		"factorizer": `def prime_factors(n):
    """Return the prime factorization of n."""
    factors = []
    d = 2
    while d * d <= n:
        while n % d == 0:
            factors.append(d)
            n //= d
        d += 1
    if n > 1:
        factors.append(n)
    return factors`,
		"counter": `def count_primes(limit):
    """Count the number of primes up to limit."""
    if limit < 2:
        return 0
    is_prime = [True] * (limit + 1)
    is_prime[0] = is_prime[1] = False
    for i in range(2, int(limit**0.5) + 1):
        if is_prime[i]:
            for j in range(i * i, limit + 1, i):
                is_prime[j] = False
    return sum(is_prime)`,
	},
	MainVariants: map[string]string{
		"checker": `    for n in [2, 7, 11, 15, 23, 100, 101]:
        print(f"{n}: {'prime' if is_prime(n) else 'not prime'}")`,
		"sieve": `    primes = sieve_of_eratosthenes(100)
    print(f"Primes up to 100: {primes}")
    print(f"Count: {len(primes)}")`,
		"factorizer": `    for n in [12, 60, 100, 137, 1001, 9999]:
        print(f"{n} = {' x '.join(str(f) for f in prime_factors(n))}")`,
		"counter": `    for n in [10, 100, 1000, 10000]:
        print(f"Primes up to {n}: {count_primes(n)}")`,
	},
	Descriptions: map[string]string{
		"checker":    "Checks if a given number is prime.",
		"sieve":      "Finds all primes up to a limit using the Sieve of Eratosthenes.",
		"factorizer": "Computes the prime factorization of a number.",
		"counter":    "Counts prime numbers up to a given limit.",
	},
	BasePrice: 13,
}

var stringFamily = Template{
	NamePattern: "string-{variant}",
	Variants:    []string{"reverser", "analyzer", "formatter", "compressor"},
	Skeleton: `"""String {variant}.

{description}
"""


{body}


def main():
    print("=== String {variant} ===")
{main_body}


if __name__ == "__main__":
    main()
`,
	BodyVariants: map[string]string{
		"reverser": `def reverse_string(s):
    """Reverse a string."""
    return s[::-1]


def reverse_words(s):
    """Reverse the order of words in a string."""
    return " ".join(s.split()[::-1])


def is_palindrome(s):
    """Check if a string is a palindrome."""
    cleaned = s.lower().replace(" ", "")
    return cleaned == cleaned[::-1]`,
		"analyzer": `def analyze(text):
    """Analyze text and return statistics."""
    words = text.split()
    chars = len(text)
    word_count = len(words)
    char_freq = {}
    for c in text.lower():
        if c.isalpha():
            char_freq[c] = char_freq.get(c, 0) + 1
    unique_words = len(set(w.lower() for w in words))
    avg_word_len = sum(len(w) for w in words) / max(word_count, 1)
    return {
        "chars": chars,
        "words": word_count,
        "unique_words": unique_words,
        "avg_word_length": round(avg_word_len, 2),
        "top_chars": sorted(char_freq.items(), key=lambda x: -x[1])[:5],
    }`,
		"formatter": `def center_text(text, width=40, fill=" "):
    """Center text within a given width."""
    return text.center(width, fill)


def box_text(text, padding=1):
    """Wrap text in a box."""
    lines = text.split("\n")
    max_len = max(len(line) for line in lines)
    border = "+" + "-" * (max_len + padding * 2) + "+"
    result = [border]
    for line in lines:
        padded = " " * padding + line.ljust(max_len) + " " * padding
        result.append("|" + padded + "|")
    result.append(border)
    return "\n".join(result)


def truncate(text, max_len=20, suffix="..."):
    """Truncate text to max_len characters."""
    if len(text) <= max_len:
        return text
    return text[: max_len - len(suffix)] + suffix`,
		"compressor": `def run_length_encode(s):
    """Run-length encode a string."""
    if not s:
        return ""
    result = []
    count = 1
    for i in range(1, len(s)):
        if s[i] == s[i - 1]:
            count += 1
        else:
            result.append(f"{s[i-1]}{count}" if count > 1 else s[i - 1])
            count = 1
    result.append(f"{s[-1]}{count}" if count > 1 else s[-1])
    return "".join(result)


def run_length_decode(s):
    """Decode a run-length encoded string."""
    result = []
    i = 0
    while i < len(s):
        char = s[i]
        i += 1
        num = ""
        while i < len(s) and s[i].isdigit():
            num += s[i]
            i += 1
        result.append(char * (int(num) if num else 1))
    return "".join(result)`,
	},
	MainVariants: map[string]string{
		"reverser": `    test = "hello world"
    print(f"Original: {test}")
    print(f"Reversed: {reverse_string(test)}")
    print(f"Words reversed: {reverse_words(test)}")
    print(f"Is palindrome: {is_palindrome(test)}")
    print(f"'racecar' palindrome: {is_palindrome('racecar')}")`,
		"analyzer": `    text = "The quick brown fox jumps over the lazy dog"
    stats = analyze(text)
    for key, value in stats.items():
        print(f"  {key}: {value}")`,
		"formatter": `    print(center_text("Hello World", 40, "-"))
    print(box_text("Hello\nWorld\nFrom Python"))
    print(truncate("This is a very long string", 15))`,
		"compressor": `    tests = ["aaabbbcccc", "WWWWAAADEXXXXXX", "abcdef"]
    for t in tests:
        encoded = run_length_encode(t)
        decoded = run_length_decode(encoded)
        print(f"{t} -> {encoded} -> {decoded}")`,
	},
	Descriptions: map[string]string{
		"reverser":   "Reverse strings and check for palindromes.",
		"analyzer":   "Analyze text and compute statistics.",
		"formatter":  "Format and style text output.",
		"compressor": "Run-length encode and decode strings.",
	},
	BasePrice: 11,
}

var stackFamily = Template{
	NamePattern: "stack-{variant}",
	Variants:    []string{"basic", "minstack"},
	Skeleton: `"""Stack implementation ({variant}).

{description}
"""


{body}


def main():
    print("=== Stack ({variant}) ===")
{main_body}


if __name__ == "__main__":
    main()
`,
	BodyVariants: map[string]string{
		"basic": `class Stack:
    """A simple stack implementation."""

    def __init__(self):
        self._items = []

    def push(self, item):
        self._items.append(item)

    def pop(self):
        if self.is_empty():
            raise IndexError("pop from empty stack")
        return self._items.pop()

    def peek(self):
        if self.is_empty():
            raise IndexError("peek from empty stack")
        return self._items[-1]

    def is_empty(self):
        return len(self._items) == 0

    def size(self):
        return len(self._items)

    def __repr__(self):
        return f"Stack({self._items})"`,
		"minstack": `class MinStack:
    """Stack that supports O(1) get_min operation."""

    def __init__(self):
        self._items = []
        self._mins = []

    def push(self, item):
        self._items.append(item)
        if not self._mins or item <= self._mins[-1]:
            self._mins.append(item)

    def pop(self):
        if not self._items:
            raise IndexError("pop from empty stack")
        val = self._items.pop()
        if val == self._mins[-1]:
            self._mins.pop()
        return val

    def get_min(self):
        if not self._mins:
            raise IndexError("min from empty stack")
        return self._mins[-1]

    def peek(self):
        return self._items[-1]

    def size(self):
        return len(self._items)

    def __repr__(self):
        return f"MinStack({self._items}, min={self._mins[-1] if self._mins else None})"`,
	},
	MainVariants: map[string]string{
		"basic": `    s = Stack()
    for val in [10, 20, 30, 40]:
        s.push(val)
        print(f"Push {val}: {s}")
    while not s.is_empty():
        print(f"Pop: {s.pop()}")`,
		"minstack": `    s = MinStack()
    for val in [5, 3, 7, 1, 4]:
        s.push(val)
        print(f"Push {val}, min={s.get_min()}: {s}")
    while s.size() > 0:
        print(f"Pop {s.pop()}, min={s.get_min() if s.size() > 0 else 'empty'}")`,
	},
	Descriptions: map[string]string{
		"basic":    "Simple stack with push, pop, peek.",
		"minstack": "Stack with O(1) minimum query.",
	},
	BasePrice: 14,
}

var base64Family = Template{
	NamePattern: "base64-{variant}",
	Variants:    []string{"codec", "urlsafe"},
	Skeleton: `"""Base64 {variant}.

Encode and decode data in base64 format.
"""

import base64 as b64


{body}


def main():
    print("=== Base64 {variant} ===")
{main_body}


if __name__ == "__main__":
    main()
`,
	BodyVariants: map[string]string{
		"codec": `def encode(data):
    """Base64 encode a string."""
    return b64.b64encode(data.encode("utf-8")).decode("ascii")


def decode(encoded):
    """Base64 decode a string."""
    return b64.b64decode(encoded).decode("utf-8")`,
		"urlsafe": `def encode_urlsafe(data):
    """URL-safe base64 encode."""
    return b64.urlsafe_b64encode(data.encode("utf-8")).decode("ascii")


def decode_urlsafe(encoded):
    """URL-safe base64 decode."""
    return b64.urlsafe_b64decode(encoded).decode("utf-8")`,
	},
	MainVariants: map[string]string{
		"codec": `    tests = ["Hello, World!", "Python is great!", "base64 encoding test"]
    for text in tests:
        enc = encode(text)
        dec = decode(enc)
        print(f"{text} -> {enc} -> {dec}")`,
		"urlsafe": `    tests = ["https://example.com/path?q=1&r=2", "data+with/special=chars"]
    for text in tests:
        enc = encode_urlsafe(text)
        dec = decode_urlsafe(enc)
        print(f"{text}\n  -> {enc}\n  -> {dec}")`,
	},
	BasePrice: 10,
}

var fileSizeFamily = Template{
	NamePattern: "file-size-{variant}",
	Variants:    []string{"formatter", "estimator"},
	Skeleton: `"""File size {variant}.

{description}
"""


{body}


def main():
    print("=== File Size {variant} ===")
{main_body}


if __name__ == "__main__":
    main()
`,
	BodyVariants: map[string]string{
		"formatter": `def format_size(size_bytes):
    """Format bytes to human-readable size."""
    units = ["B", "KB", "MB", "GB", "TB"]
    size = float(size_bytes)
    for unit in units:
        if abs(size) < 1024.0:
            return f"{size:.2f} {unit}"
        size /= 1024.0
    return f"{size:.2f} PB"


def parse_size(size_str):
    """Parse human-readable size to bytes."""
    units = {"B": 1, "KB": 1024, "MB": 1024**2, "GB": 1024**3, "TB": 1024**4}
    size_str = size_str.strip().upper()
    for unit, multiplier in sorted(units.items(), key=lambda x: -len(x[0])):
        if size_str.endswith(unit):
            num = float(size_str[: -len(unit)].strip())
            return int(num * multiplier)
    return int(float(size_str))`,
		"estimator": `def estimate_text_size(char_count, encoding="utf-8"):
    """Estimate file size for text with given character count."""
    avg_bytes = {"utf-8": 1.5, "ascii": 1.0, "utf-16": 2.5, "utf-32": 4.0}
    return int(char_count * avg_bytes.get(encoding, 1.5))


def estimate_csv_size(rows, cols, avg_cell_len=8):
    """Estimate CSV file size."""
    cell_bytes = rows * cols * (avg_cell_len + 1)
    row_breaks = rows
    return cell_bytes + row_breaks`,
	},
	MainVariants: map[string]string{
		"formatter": `    sizes = [0, 512, 1024, 1048576, 1073741824, 5368709120]
    for s in sizes:
        print(f"{s:>15d} bytes = {format_size(s)}")
    print()
    for s_str in ["1.5 GB", "512 KB", "100 MB"]:
        print(f"{s_str} = {parse_size(s_str)} bytes")`,
		"estimator": `    for chars in [100, 1000, 10000, 100000]:
        for enc in ["utf-8", "ascii", "utf-16"]:
            size = estimate_text_size(chars, enc)
            print(f"{chars} chars ({enc}): ~{size} bytes")
    print()
    for rows in [100, 1000, 10000]:
        size = estimate_csv_size(rows, 10)
        print(f"CSV {rows}x10: ~{size} bytes")`,
	},
	Descriptions: map[string]string{
		"formatter": "Format and parse file sizes.",
		"estimator": "Estimate file sizes for various formats.",
	},
	BasePrice: 9,
}

var passwordFamily = Template{
	NamePattern: "password-{variant}",
	Variants:    []string{"generator", "strength"},
	Skeleton: `"""Password {variant}.

{description}
"""

import random
import string


{body}


def main():
    print("=== Password {variant} ===")
{main_body}


if __name__ == "__main__":
    main()
`,
	BodyVariants: map[string]string{
		"generator": `def generate_password(length=16, use_upper=True, use_digits=True, use_special=True):
    """Generate a random password."""
    chars = string.ascii_lowercase
    if use_upper:
        chars += string.ascii_uppercase
    if use_digits:
        chars += string.digits
    if use_special:
        chars += "!@#$%^&*()-_=+"
    return "".join(random.choice(chars) for _ in range(length))


def generate_passphrase(word_count=4):
    """Generate a passphrase from common words."""
    words = [
        "apple", "brave", "cloud", "dance", "eagle", "flame", "grape",
        "heart", "ivory", "joker", "knife", "lemon", "maple", "noble",
        "ocean", "pearl", "queen", "river", "storm", "tiger", "ultra",
        "vivid", "whale", "xenon", "yacht", "zebra",
    ]
    return "-".join(random.choice(words) for _ in range(word_count))`,
		"strength": `def check_strength(password):
    """Check password strength. Returns score 0-100."""
    score = 0
    length = len(password)

    # Length scoring
    score += min(length * 4, 40)

    # Character variety
    has_lower = any(c.islower() for c in password)
    has_upper = any(c.isupper() for c in password)
    has_digit = any(c.isdigit() for c in password)
    has_special = any(not c.isalnum() for c in password)

    variety = sum([has_lower, has_upper, has_digit, has_special])
    score += variety * 15

    # Unique characters
    unique_ratio = len(set(password)) / max(length, 1)
    score += int(unique_ratio * 20)

    return min(score, 100)


def strength_label(score):
    """Return a label for the strength score."""
    if score >= 80:
        return "Strong"
    elif score >= 60:
        return "Good"
    elif score >= 40:
        return "Fair"
    else:
        return "Weak"`,
	},
	MainVariants: map[string]string{
		"generator": `    print("Random passwords:")
    for length in [8, 12, 16, 24]:
        pw = generate_password(length)
        print(f"  Length {length}: {pw}")
    print("\nPassphrases:")
    for count in [3, 4, 5]:
        pp = generate_passphrase(count)
        print(f"  {count} words: {pp}")`,
		"strength": `    passwords = ["abc", "Password1", "P@ssw0rd!", "xK#9mQ&vL2$n", "aaaaaaaaaaaa"]
    for pw in passwords:
        score = check_strength(pw)
        label = strength_label(score)
        print(f"  {pw:20s} -> {score:3d}/100 ({label})")`,
	},
	Descriptions: map[string]string{
		"generator": "Generate random passwords and passphrases.",
		"strength":  "Check password strength.",
	},
	BasePrice: 11,
}

var temperatureFamily = Template{
	NamePattern: "temperature-{variant}",
	Variants:    []string{"converter", "table"},
	Skeleton: `"""Temperature {variant}.

Convert between temperature scales.
"""


{body}


def main():
    print("=== Temperature {variant} ===")
{main_body}


if __name__ == "__main__":
    main()
`,
	BodyVariants: map[string]string{
		"converter": `def celsius_to_fahrenheit(c):
    return c * 9 / 5 + 32


def fahrenheit_to_celsius(f):
    return (f - 32) * 5 / 9


def celsius_to_kelvin(c):
    return c + 273.15


def kelvin_to_celsius(k):
    return k - 273.15


def convert(value, from_unit, to_unit):
    """Convert between C, F, K."""
    # First convert to Celsius
    if from_unit == "F":
        c = fahrenheit_to_celsius(value)
    elif from_unit == "K":
        c = kelvin_to_celsius(value)
    else:
        c = value
    # Then convert to target
    if to_unit == "F":
        return celsius_to_fahrenheit(c)
    elif to_unit == "K":
        return celsius_to_kelvin(c)
    return c`,
		"table": `def celsius_to_fahrenheit(c):
    return c * 9 / 5 + 32


def celsius_to_kelvin(c):
    return c + 273.15


def conversion_table(start=-20, end=100, step=10):
    """Generate a conversion table."""
    rows = []
    for c in range(start, end + 1, step):
        rows.append({
            "celsius": c,
            "fahrenheit": round(celsius_to_fahrenheit(c), 1),
            "kelvin": round(celsius_to_kelvin(c), 2),
        })
    return rows`,
	},
	MainVariants: map[string]string{
		"converter": `    conversions = [
        (100, "C", "F"), (212, "F", "C"), (0, "C", "K"),
        (373.15, "K", "C"), (98.6, "F", "K"),
    ]
    for val, f, t in conversions:
        result = convert(val, f, t)
        print(f"  {val}{f} = {result:.2f}{t}")`,
		"table": `    table = conversion_table(-20, 100, 20)
    print(f"  {'Celsius':>10s} {'Fahrenheit':>12s} {'Kelvin':>10s}")
    print(f"  {'-'*10} {'-'*12} {'-'*10}")
    for row in table:
        print(f"  {row['celsius']:>10.1f} {row['fahrenheit']:>12.1f} {row['kelvin']:>10.2f}")`,
	},
	BasePrice: 8,
}

var emailFamily = Template{
	NamePattern: "email-{variant}",
	Variants:    []string{"validator", "parser"},
	Skeleton: `"""Email {variant}.

{description}
"""

import re


{body}


def main():
    print("=== Email {variant} ===")
{main_body}


if __name__ == "__main__":
    main()
`,
	BodyVariants: map[string]string{
		"validator": `def is_valid_email(email):
    """Validate an email address."""
    pattern = r"^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$"
    return bool(re.match(pattern, email))


def validate_emails(emails):
    """Validate a list of emails and return results."""
    return {email: is_valid_email(email) for email in emails}`,
		"parser": `def parse_email(email):
    """Parse an email into components."""
    pattern = r"^([a-zA-Z0-9._%+-]+)@([a-zA-Z0-9.-]+)\.([a-zA-Z]{2,})$"
    match = re.match(pattern, email)
    if not match:
        return None
    return {
        "local": match.group(1),
        "domain": match.group(2),
        "tld": match.group(3),
        "full": email,
    }`,
	},
	MainVariants: map[string]string{
		"validator": `    emails = [
        "user@example.com", "bad@", "test.user@domain.co.jp",
        "@nodomain.com", "spaces @bad.com", "good+tag@mail.org",
    ]
    results = validate_emails(emails)
    for email, valid in results.items():
        status = "VALID" if valid else "INVALID"
        print(f"  {email:30s} -> {status}")`,
		"parser": `    emails = ["alice@example.com", "bob.smith@company.co.jp", "invalid"]
    for email in emails:
        parsed = parse_email(email)
        if parsed:
            print(f"  {email}:")
            print(f"    Local: {parsed['local']}, Domain: {parsed['domain']}, TLD: {parsed['tld']}")
        else:
            print(f"  {email}: Invalid format")`,
	},
	Descriptions: map[string]string{
		"validator": "Validate email address format.",
		"parser":    "Parse email addresses into components.",
	},
	BasePrice: 10,
}
